package reminder

import "go.uber.org/fx"

var Module = fx.Module("reminder",
	fx.Provide(NewRunner),
)
