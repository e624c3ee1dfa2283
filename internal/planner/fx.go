package planner

import "go.uber.org/fx"

var Module = fx.Module("planner",
	fx.Provide(New),
)
