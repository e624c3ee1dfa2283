package synchistory

import (
	"github.com/azerion/cloudledger/internal/synchistory/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("synchistory",
	fx.Provide(repository.NewRepository),
)
