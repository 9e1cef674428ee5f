package middleware

import (
	"net/http"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// FeatureGate returns a Gin middleware that blocks requests when the currently
// validated license does not enable the named feature. Returns 402 Payment
// Required. Access fails closed: no validated license means no feature.
func FeatureGate(manager *license.Manager, feature string, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "feature_gate").Str("feature", feature).Logger()

	return func(c *gin.Context) {
		if !manager.IsFeatureEnabled(feature) {
			log.Debug().Msg("feature access denied")
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":   "feature not available",
				"feature": feature,
			})
			return
		}

		c.Next()
	}
}
