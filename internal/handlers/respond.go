package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/services"
)

// respondError maps service errors onto HTTP statuses. Storage failures are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case services.IsNotFound(err):
		status = http.StatusNotFound
	case services.IsValidation(err):
		status = http.StatusBadRequest
	case services.IsConflict(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit and offset; the services clamp them
func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, offset
}
