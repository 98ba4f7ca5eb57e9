package types

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

// Handler utility functions shared across route packages

// ParseUintParam extracts and parses a URL parameter as uint
// Returns the parsed value and sends error response if parsing fails
func ParseUintParam(c *gin.Context, paramName string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || value == 0 {
		SendBadRequest(c, "Invalid "+paramName)
		return 0, false
	}
	return uint(value), true
}

// BindJSONOrError attempts to bind JSON request body to target struct
// Returns false and sends error response if binding fails
func BindJSONOrError(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  StatusError,
			Message: "Invalid request body",
			Error:   string(apperrors.ErrCodeInvalidInput),
			Details: err.Error(),
		})
		return false
	}
	return true
}

// SendError writes err using the status code and code carried by an AppError.
// Errors without one become a generic 500.
func SendError(c *gin.Context, err error) {
	status := apperrors.GetHTTPCode(err)
	resp := ErrorResponse{
		Status: StatusError,
		Error:  string(apperrors.GetCode(err)),
	}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		resp.Message = appErr.Message
		if len(appErr.Details) > 0 {
			resp.Details = appErr.Details
		}
	}
	if resp.Message == "" || status == http.StatusInternalServerError {
		resp.Message = http.StatusText(status)
	}
	c.JSON(status, resp)
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeInvalidInput)})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeNotFound)})
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
