package sequence

import (
	"github.com/Nikjeremic/uptiomio/internal/sequence/repository"
	"github.com/Nikjeremic/uptiomio/internal/sequence/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
