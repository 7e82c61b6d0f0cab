package exports

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Context keys set by APIKeyAuthMiddleware for the export handlers.
const (
	ctxExportOrgID = "exportOrgID"
	ctxExportKeyID = "exportKeyID"
)

// APIKeyAuthMiddleware validates export API keys for the key-authenticated
// export endpoints. The key scopes the request to its organization.
func APIKeyAuthMiddleware(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext := c.GetHeader("X-Export-API-Key")
		if plaintext == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing export API key"})
			return
		}

		hash := HashKey(plaintext)
		key, err := repo.GetAPIKeyByHash(c.Request.Context(), hash)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid export API key"})
			return
		}

		c.Set(ctxExportOrgID, key.OrganizationID)
		c.Set(ctxExportKeyID, key.ID)
		c.Next()
	}
}
