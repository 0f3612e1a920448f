package server

import (
	"log/slog"
	"net/http"

	"codeessence/internal/gateway/handler"
	"codeessence/internal/gateway/middleware"
)

func NewMux(essenceHandler *handler.EssenceHandler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	essenceHandler.Register(mux)
	return middleware.CORS(middleware.RequestLog(logger)(mux))
}
