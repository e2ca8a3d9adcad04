package redis

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/aescanero/factllm/pkg/domain"
)

// KeyForClient derives a limiter group from the provider and a hash of its
// credentials, so that clients sharing an API key share one window without
// the key itself reaching Redis.
func KeyForClient(cfg domain.ClientConfig) string {
	names := make([]string, 0, len(cfg.APIConfig))
	for k := range cfg.APIConfig {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, k := range names {
		fmt.Fprintf(h, "%s=%s\n", k, cfg.APIConfig[k])
	}
	return fmt.Sprintf("%s:%x", cfg.Provider, h.Sum(nil)[:8])
}
