package auth

import (
	"github.com/Nikjeremic/uptiomio/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.tokens",
	fx.Provide(service.New),
)
