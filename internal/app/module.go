package app

import (
	"time"

	"github.com/kestrelmarket/billing/internal/app/api/server"
	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/internal/app/service/gateway"
	"github.com/kestrelmarket/billing/internal/app/service/notification"
	"github.com/kestrelmarket/billing/internal/app/service/scheduler"
	"github.com/kestrelmarket/billing/internal/platform/db"
	"github.com/kestrelmarket/billing/pkg/config"
	"github.com/kestrelmarket/billing/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	notification.Module,
	billing.Module,
	gateway.Module,
	scheduler.Module,
)
