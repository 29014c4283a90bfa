package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// entityFromParam resolves the :entity path segment, which may be the
// collection name or the tag.
func entityFromParam(c *gin.Context) (models.EntityType, error) {
	raw := c.Param("entity")
	t, ok := models.ParseEntityType(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", raw))
	}
	return t, nil
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
