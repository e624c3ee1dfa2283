package provider

import "go.uber.org/fx"

var Module = fx.Module("provider",
	fx.Provide(
		NewEnvSecretSource,
		fx.Annotate(NewRegistry, fx.ParamTags(`group:"fetch_adapters"`)),
	),
)
