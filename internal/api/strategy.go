package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/getlantern/geneva/v2"
	"github.com/getlantern/geneva/v2/strategy"
)

// maxStrategySize bounds request bodies carrying a strategy.
const maxStrategySize = 64 << 10

type strategyResponse struct {
	Strategy string   `json:"strategy"`
	Outbound []string `json:"outbound"`
	Inbound  []string `json:"inbound"`
}

func newStrategyResponse(s *strategy.Strategy) *strategyResponse {
	resp := &strategyResponse{
		Strategy: s.String(),
		Outbound: []string{},
		Inbound:  []string{},
	}
	for _, at := range s.Outbound {
		resp.Outbound = append(resp.Outbound, at.String())
	}
	for _, at := range s.Inbound {
		resp.Inbound = append(resp.Inbound, at.String())
	}

	return resp
}

func healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, Response{Msg: "OK"})
}

// getStrategy returns the active strategy in a JSON envelope, or as bare canonical text for clients that accept
// text/plain.
func (h *handler) getStrategy(ctx *gin.Context) {
	s := h.engine.Strategy()

	if ctx.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		ctx.String(http.StatusOK, "%s\n", s)
		return
	}

	ctx.JSON(http.StatusOK, Response{Data: newStrategyResponse(s)})
}

func (h *handler) updateStrategy(ctx *gin.Context) {
	text, err := readStrategy(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}

	s, err := h.engine.Update(text)
	if err != nil {
		writeError(ctx, NewError(http.StatusBadRequest, ErrCodeInvalid, err.Error()))
		return
	}

	ctx.JSON(http.StatusOK, Response{Msg: "OK", Data: newStrategyResponse(s)})
}

func validateStrategy(ctx *gin.Context) {
	text, err := readStrategy(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}

	s, err := geneva.NewStrategy(text)
	if err != nil {
		writeError(ctx, NewError(http.StatusBadRequest, ErrCodeInvalid, err.Error()))
		return
	}

	ctx.JSON(http.StatusOK, Response{Msg: "OK", Data: newStrategyResponse(s)})
}

// readStrategy accepts the strategy as a plain-text body.
func readStrategy(ctx *gin.Context) (string, error) {
	b, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxStrategySize+1))
	if err != nil {
		return "", NewError(http.StatusBadRequest, ErrCodeInvalid, err.Error())
	}
	if len(b) > maxStrategySize {
		return "", ErrTooLarge
	}

	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", ErrEmpty
	}

	return text, nil
}
