package videos

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
)

// immutableCacheControl is safe because stored clips are never modified
const immutableCacheControl = "public, max-age=31536000, immutable"

// GetVideo streams the stored clip bytes
// @Summary      Download a clip
// @Description  Returns the raw clip with a long-lived immutable cache directive. Range requests are supported.
// @Tags         videos
// @Produce      octet-stream
// @Param        id   path      int  true  "Video ID"
// @Success      200  {file}    binary
// @Success      206  {file}    binary
// @Failure      400  {object}  types.ErrorResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /api/v1/videos/{id} [get]
func GetVideo(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		video, err := deps.VideoService.GetVideo(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}

		c.Header("Content-Type", video.ContentTypeOrDefault())
		c.Header("Cache-Control", immutableCacheControl)
		c.Header("ETag", fmt.Sprintf(`"%d-%s-%d"`, video.ID, video.Format, video.SizeBytes))
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.%s"`, video.Name, video.Format))

		http.ServeContent(c.Writer, c.Request, video.Name+"."+video.Format, video.CreatedAt, bytes.NewReader(video.Data))
	}
}
