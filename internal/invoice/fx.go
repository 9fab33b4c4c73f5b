package invoice

import (
	"github.com/Nikjeremic/uptiomio/internal/invoice/render"
	"github.com/Nikjeremic/uptiomio/internal/invoice/repository"
	"github.com/Nikjeremic/uptiomio/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(render.NewRenderer),
	fx.Provide(service.NewService),
)
