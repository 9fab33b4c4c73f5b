package audit

import (
	"github.com/Nikjeremic/uptiomio/internal/audit/repository"
	"github.com/Nikjeremic/uptiomio/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.trail",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
