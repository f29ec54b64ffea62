package http

import (
	"log/slog"

	"github.com/aretw0/intake/internal/logging"
)

func testLogger() *slog.Logger { return logging.NewNop() }
