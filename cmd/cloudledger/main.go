package main

import (
	"github.com/azerion/cloudledger/internal/allocation"
	"github.com/azerion/cloudledger/internal/canonical"
	"github.com/azerion/cloudledger/internal/clock"
	"github.com/azerion/cloudledger/internal/config"
	"github.com/azerion/cloudledger/internal/migration"
	"github.com/azerion/cloudledger/internal/observability"
	"github.com/azerion/cloudledger/internal/planner"
	"github.com/azerion/cloudledger/internal/provider"
	"github.com/azerion/cloudledger/internal/runlock"
	"github.com/azerion/cloudledger/internal/server"
	"github.com/azerion/cloudledger/internal/servicetype"
	"github.com/azerion/cloudledger/internal/syncer"
	"github.com/azerion/cloudledger/internal/synchistory"
	"github.com/azerion/cloudledger/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Pipeline
		servicetype.Module,
		canonical.Module,
		synchistory.Module,
		planner.Module,
		provider.Module,
		runlock.Module,
		allocation.Module,
		syncer.Module,

		// Ops endpoints only
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
