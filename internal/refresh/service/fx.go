package service

import (
	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/smallbiznis/insightsync/internal/secrets"
	"go.uber.org/fx"
)

var Module = fx.Module("refresh.service",
	fx.Provide(
		func(c *provider.Client) InsightsFetcher { return c },
		func(c *secrets.Cipher) TokenDecrypter { return c },
		New,
		func(o *Orchestrator) domain.Service { return o },
	),
)
