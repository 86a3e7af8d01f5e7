package client

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

// Secret is what a player needs to reveal later.
type Secret struct {
	GameId     uint64 `toml:"game_id"`
	Account    string `toml:"account"`
	Move       string `toml:"move"`
	Salt       string `toml:"salt"`
	Commitment string `toml:"commitment"`
}

type vaultFile struct {
	Secrets []Secret `toml:"secret"`
}

// Vault keeps move secrets in a TOML file, keyed by game id and account.
type Vault struct {
	path string
}

func DefaultVaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".rpsctl", "salts.toml"), nil
}

func NewVault(path string) *Vault {
	return &Vault{path: path}
}

// Put stores s, replacing any secret for the same game and account.
func (v *Vault) Put(s Secret) error {
	f, err := v.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range f.Secrets {
		if f.Secrets[i].GameId == s.GameId && f.Secrets[i].Account == s.Account {
			f.Secrets[i] = s
			replaced = true
		}
	}
	if !replaced {
		f.Secrets = append(f.Secrets, s)
	}
	return v.save(f)
}

// Get returns the secret for game id and account.
func (v *Vault) Get(gameId uint64, account string) (Secret, bool, error) {
	f, err := v.load()
	if err != nil {
		return Secret{}, false, err
	}
	for _, s := range f.Secrets {
		if s.GameId == gameId && s.Account == account {
			return s, true, nil
		}
	}
	return Secret{}, false, nil
}

func (v *Vault) Delete(gameId uint64, account string) error {
	f, err := v.load()
	if err != nil {
		return err
	}
	kept := f.Secrets[:0]
	for _, s := range f.Secrets {
		if s.GameId != gameId || s.Account != account {
			kept = append(kept, s)
		}
	}
	f.Secrets = kept
	return v.save(f)
}

// ParsedMove decodes the stored move name.
func (s Secret) ParsedMove() (escrow.Move, error) {
	return escrow.ParseMove(s.Move)
}

func (v *Vault) load() (vaultFile, error) {
	var f vaultFile
	if _, err := os.Stat(v.path); os.IsNotExist(err) {
		return f, nil
	}
	if _, err := toml.DecodeFile(v.path, &f); err != nil {
		return f, errors.Wrapf(err, "read vault %s", v.path)
	}
	return f, nil
}

func (v *Vault) save(f vaultFile) error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return errors.Wrap(err, "create vault directory")
	}
	tmp := v.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrapf(err, "open vault %s", tmp)
	}
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "encode vault")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close vault")
	}
	return errors.Wrap(os.Rename(tmp, v.path), "replace vault")
}
