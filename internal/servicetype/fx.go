package servicetype

import (
	"go.uber.org/fx"
)

var Module = fx.Module("servicetype",
	fx.Provide(NewRepository),
	fx.Provide(NewCache),
)
