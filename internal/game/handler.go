package game

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/utils"
)

type gameHandler struct {
	escrow *escrow.Escrow
}

func RegisterRoutes(rg *gin.RouterGroup, e *escrow.Escrow, auth gin.HandlerFunc) {
	handler := gameHandler{escrow: e}

	routes := rg.Group("/games", auth)
	routes.POST("", handler.createGame)
	routes.GET("", handler.getGames)
	routes.GET("/count", handler.getGameCount)
	routes.GET("/:id", handler.getGame)
	routes.GET("/:id/events", handler.getEvents)
	routes.POST("/:id/join", handler.joinGame)
	routes.POST("/:id/reveal", handler.reveal)
	routes.POST("/:id/cancel", handler.cancelGame)

	rg.GET("/config", handler.getConfig)
	rg.POST("/commitments", handler.createCommitment)
}

func (gh *gameHandler) createGame(c *gin.Context) {
	body := CreateGameRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}
	commitment, ok := parseCommitment(body.Commitment)
	if !ok {
		c.JSON(http.StatusBadRequest, reject.CommitmentProblem())
		return
	}

	gameId, err := gh.escrow.CreateGame(c.Request.Context(), utils.GetPlayer(c), commitment, body.Stake)
	if err != nil {
		gh.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateGameResponse{GameId: gameId})
}

func (gh *gameHandler) joinGame(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}
	body := JoinGameRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}
	commitment, ok := parseCommitment(body.Commitment)
	if !ok {
		c.JSON(http.StatusBadRequest, reject.CommitmentProblem())
		return
	}

	if err := gh.escrow.JoinGame(c.Request.Context(), utils.GetPlayer(c), gameId, commitment, body.Stake); err != nil {
		gh.fail(c, err)
		return
	}
	gh.respondWithGame(c, gameId)
}

func (gh *gameHandler) reveal(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}
	body := RevealRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}
	move, ok := parseMove(body.Move)
	if !ok {
		c.JSON(http.StatusBadRequest, reject.RequestValidationProblem())
		return
	}

	if err := gh.escrow.Reveal(c.Request.Context(), utils.GetPlayer(c), gameId, move, body.Salt); err != nil {
		gh.fail(c, err)
		return
	}
	gh.respondWithGame(c, gameId)
}

func (gh *gameHandler) cancelGame(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}
	if err := gh.escrow.CancelGame(c.Request.Context(), utils.GetPlayer(c), gameId); err != nil {
		gh.fail(c, err)
		return
	}
	gh.respondWithGame(c, gameId)
}

func (gh *gameHandler) getGames(c *gin.Context) {
	page, problem := utils.NewPageRequest(c)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}
	filter, ok := escrow.ParseFilter(c.Query("filter"))
	if !ok {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return
	}

	ctx := c.Request.Context()
	games, total, err := gh.escrow.Games(ctx, escrow.Query{
		Filter: filter,
		Player: utils.GetPlayer(c),
		Offset: page.Offset,
		Limit:  page.Size,
	})
	if err != nil {
		gh.fail(c, err)
		return
	}
	now, err := gh.escrow.Now(ctx)
	if err != nil {
		gh.fail(c, err)
		return
	}

	items := make([]GameResponse, 0, len(games))
	for i := range games {
		items = append(items, newGameResponse(&games[i], gh.escrow.Config(), now))
	}
	c.JSON(http.StatusOK, utils.NewPageResponse(page, items, total))
}

func (gh *gameHandler) getGameCount(c *gin.Context) {
	count, err := gh.escrow.GameCount(c.Request.Context())
	if err != nil {
		gh.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: count})
}

func (gh *gameHandler) getGame(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}
	gh.respondWithGame(c, gameId)
}

func (gh *gameHandler) getEvents(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}
	records, err := gh.escrow.Events(c.Request.Context(), gameId)
	if err != nil {
		gh.fail(c, err)
		return
	}
	root, err := blockchain.AuditRoot(records)
	if err != nil {
		gh.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, EventsResponse{GameId: gameId, AuditRoot: root, Events: records})
}

func (gh *gameHandler) getConfig(c *gin.Context) {
	now, err := gh.escrow.Now(c.Request.Context())
	if err != nil {
		gh.fail(c, err)
		return
	}
	cfg := gh.escrow.Config()
	c.JSON(http.StatusOK, ConfigResponse{
		JoinTimeout:   int64(cfg.JoinTimeout.Seconds()),
		RevealTimeout: int64(cfg.RevealTimeout.Seconds()),
		Now:           now,
	})
}

// createCommitment computes the commitment a client should submit. A salt is
// generated when none is given.
func (gh *gameHandler) createCommitment(c *gin.Context) {
	body := CommitmentRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}
	move, ok := parseMove(body.Move)
	if !ok || !move.Valid() {
		c.JSON(http.StatusBadRequest, reject.NewProblem().
			WithTitle("Invalid move").
			WithStatus(http.StatusBadRequest).
			WithCode(reject.EscrowCode(escrow.KindInvalidMove)).
			Build())
		return
	}
	salt := body.Salt
	if salt == "" {
		var err error
		if salt, err = escrow.NewSalt(); err != nil {
			gh.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, CommitmentResponse{
		Move:       move,
		Salt:       salt,
		Commitment: escrow.Commit(move, salt).Hex(),
	})
}

func (gh *gameHandler) respondWithGame(c *gin.Context, gameId uint64) {
	ctx := c.Request.Context()
	g, err := gh.escrow.Game(ctx, gameId)
	if err != nil {
		gh.fail(c, err)
		return
	}
	now, err := gh.escrow.Now(ctx)
	if err != nil {
		gh.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newGameResponse(g, gh.escrow.Config(), now))
}

func (gh *gameHandler) fail(c *gin.Context, err error) {
	p := reject.EscrowProblem(err)
	if p.Problem.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("player", string(utils.GetPlayer(c))).Msg("Operation rejected")
	}
	c.JSON(p.Problem.Status, p.Problem)
}

func gameIdParam(c *gin.Context) (uint64, bool) {
	gameId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, reject.GameIdProblem(c.Param("id")))
		return 0, false
	}
	return gameId, true
}
