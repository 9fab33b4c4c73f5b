package overdue

import "go.uber.org/fx"

var Module = fx.Module("overdue",
	fx.Provide(NewAggregator),
)
