package allocation

import (
	"github.com/azerion/cloudledger/internal/allocation/repository"
	"github.com/azerion/cloudledger/internal/allocation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("allocation",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
