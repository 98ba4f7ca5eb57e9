package videos

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
	videosvc "github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
)

// PostBatchUpload handles idempotent batch ingestion of clips and word mappings
// @Summary      Batch upload clips
// @Description  Stores clips keyed by name+format and their word mappings. Re-submitting identical data reports "existed" and creates nothing.
// @Tags         videos
// @Accept       json
// @Produce      json
// @Param        request  body      videos.BatchUploadRequest  true  "Clips to ingest"
// @Success      200      {object}  videos.BatchUploadResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Router       /api/v1/videos/batch-upload [post]
func PostBatchUpload(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req videosvc.BatchUploadRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		resp, err := deps.VideoService.BatchUpload(c.Request.Context(), &req)
		if err != nil {
			types.SendError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
