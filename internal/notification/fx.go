package notification

import (
	"github.com/Nikjeremic/uptiomio/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(service.New),
)
