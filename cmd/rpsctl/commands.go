package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/client"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rpsctl",
		Short:         "rock paper scissors escrow client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("url", "http://localhost:8080/rps-api", "api base url")
	cmd.PersistentFlags().String("token", "", "bearer token, defaults to $RPS_TOKEN")
	cmd.PersistentFlags().String("account", "", "account the vault files secrets under, defaults to the token")
	cmd.PersistentFlags().String("vault", "", "salt vault file, defaults to ~/.rpsctl/salts.toml")

	v := viper.New()
	v.SetEnvPrefix("RPS")
	v.AutomaticEnv()
	_ = v.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("token", cmd.PersistentFlags().Lookup("token"))
	_ = v.BindPFlag("account", cmd.PersistentFlags().Lookup("account"))
	_ = v.BindPFlag("vault", cmd.PersistentFlags().Lookup("vault"))

	cmd.AddCommand(
		ConfigCmd(v),
		GamesCmd(v),
		ShowCmd(v),
		CommitCmd(),
		CreateCmd(v),
		JoinCmd(v),
		RevealCmd(v),
		CancelCmd(v),
	)
	return cmd
}

type session struct {
	api     *client.Client
	vault   *client.Vault
	account string
}

func newSession(v *viper.Viper) (*session, error) {
	path := v.GetString("vault")
	if path == "" {
		var err error
		if path, err = client.DefaultVaultPath(); err != nil {
			return nil, err
		}
	}
	account := v.GetString("account")
	if account == "" {
		account = v.GetString("token")
	}
	return &session{
		api:     client.New(v.GetString("url"), v.GetString("token")),
		vault:   client.NewVault(path),
		account: account,
	}, nil
}

func ConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the server timeouts and clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			res, err := s.api.Config(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func GamesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			pageSize, _ := cmd.Flags().GetInt64("page-size")
			pageToken, _ := cmd.Flags().GetInt64("page-token")

			s, err := newSession(v)
			if err != nil {
				return err
			}
			res, err := s.api.Games(context.Background(), filter, pageSize, pageToken)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringP("filter", "f", "", "all, open, mine or finished")
	cmd.Flags().Int64("page-size", 0, "games per page")
	cmd.Flags().Int64("page-token", 0, "token from the previous page")
	return cmd
}

func ShowCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <game id>",
		Short: "Show a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameId(args[0])
			if err != nil {
				return err
			}
			withEvents, _ := cmd.Flags().GetBool("events")

			s, err := newSession(v)
			if err != nil {
				return err
			}
			if withEvents {
				res, err := s.api.Events(context.Background(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			}
			res, err := s.api.Game(context.Background(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolP("events", "e", false, "show the event log instead")
	return cmd
}

// CommitCmd computes a commitment offline.
func CommitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Compute the commitment for a move",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			move, salt, err := moveAndSalt(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, client.Secret{
				Move:       move.String(),
				Salt:       salt,
				Commitment: escrow.Commit(move, salt).Hex(),
			})
		},
	}
	addMoveFlags(cmd)
	return cmd
}

func CreateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			move, salt, err := moveAndSalt(cmd)
			if err != nil {
				return err
			}
			stake, err := stakeFlag(cmd)
			if err != nil {
				return err
			}
			if stake.IsZero() {
				return errors.New("--stake is required")
			}

			s, err := newSession(v)
			if err != nil {
				return err
			}
			commitment := escrow.Commit(move, salt).Hex()
			id, err := s.api.CreateGame(context.Background(), commitment, stake)
			if err != nil {
				return err
			}
			secret := client.Secret{GameId: id, Account: s.account, Move: move.String(), Salt: salt, Commitment: commitment}
			if err := keep(cmd, s.vault, secret); err != nil {
				return err
			}
			return printJSON(cmd, secret)
		},
	}
	addMoveFlags(cmd)
	cmd.Flags().String("stake", "", "wager")
	return cmd
}

func JoinCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <game id>",
		Short: "Join an open game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameId(args[0])
			if err != nil {
				return err
			}
			move, salt, err := moveAndSalt(cmd)
			if err != nil {
				return err
			}
			stake, err := stakeFlag(cmd)
			if err != nil {
				return err
			}

			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx := context.Background()
			if stake.IsZero() {
				g, err := s.api.Game(ctx, id)
				if err != nil {
					return err
				}
				stake = g.Wager
			}
			commitment := escrow.Commit(move, salt).Hex()
			res, err := s.api.JoinGame(ctx, id, commitment, stake)
			if err != nil {
				return err
			}
			secret := client.Secret{GameId: id, Account: s.account, Move: move.String(), Salt: salt, Commitment: commitment}
			if err := keep(cmd, s.vault, secret); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	addMoveFlags(cmd)
	cmd.Flags().String("stake", "", "wager, defaults to the game's")
	return cmd
}

func RevealCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reveal <game id>",
		Short: "Reveal a committed move",
		Long:  "Reveal a committed move. Without --move the move and salt are read from the vault.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameId(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(v)
			if err != nil {
				return err
			}

			var move escrow.Move
			var salt string
			if name, _ := cmd.Flags().GetString("move"); name != "" {
				if move, err = escrow.ParseMove(name); err != nil {
					return err
				}
				salt, _ = cmd.Flags().GetString("salt")
			} else {
				secret, ok, err := s.vault.Get(id, s.account)
				if err != nil {
					return err
				}
				if !ok {
					return errors.Errorf("no secret for game %d and account %q, pass --move and --salt", id, s.account)
				}
				if move, err = secret.ParsedMove(); err != nil {
					return err
				}
				salt = secret.Salt
			}

			res, err := s.api.Reveal(context.Background(), id, move, salt)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringP("move", "m", "", "rock, paper or scissors")
	cmd.Flags().StringP("salt", "s", "", "salt used for the commitment")
	return cmd
}

func CancelCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <game id>",
		Short: "Cancel a game whose deadline passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameId(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(v)
			if err != nil {
				return err
			}
			res, err := s.api.CancelGame(context.Background(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func addMoveFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("move", "m", "", "rock, paper or scissors")
	_ = cmd.MarkFlagRequired("move")
	cmd.Flags().StringP("salt", "s", "", "salt, generated when empty")
}

func moveAndSalt(cmd *cobra.Command) (escrow.Move, string, error) {
	name, _ := cmd.Flags().GetString("move")
	move, err := escrow.ParseMove(name)
	if err != nil {
		return escrow.None, "", err
	}
	salt, _ := cmd.Flags().GetString("salt")
	if salt == "" {
		if salt, err = escrow.NewSalt(); err != nil {
			return escrow.None, "", err
		}
	}
	return move, salt, nil
}

func stakeFlag(cmd *cobra.Command) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString("stake")
	if raw == "" {
		return decimal.Zero, nil
	}
	stake, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid stake %q", raw)
	}
	return stake, nil
}

func parseGameId(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid game id %q", s)
	}
	return id, nil
}

// keep stores the secret of a commitment the server already accepted. If the
// vault cannot take it, the secret is printed and carried in the error since
// the move cannot be revealed without it.
func keep(cmd *cobra.Command, vault *client.Vault, secret client.Secret) error {
	err := vault.Put(secret)
	if err == nil {
		return nil
	}
	_ = printJSON(cmd, secret)
	return errors.Wrapf(err, "game %d committed but the secret was not saved, keep move %s salt %s",
		secret.GameId, secret.Move, secret.Salt)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
