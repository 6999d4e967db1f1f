package demographics

import (
	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/secrets"
	"go.uber.org/fx"
)

var Module = fx.Module("demographics",
	fx.Provide(
		func(c *provider.Client) Fetcher { return c },
		func(c *secrets.Cipher) Decrypter { return c },
		New,
	),
)
