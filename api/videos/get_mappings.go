package videos

import (
	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
)

// GetMappings lists the word mappings of a clip
// @Summary      List word mappings for a clip
// @Tags         videos
// @Produce      json
// @Param        id   path      int  true  "Video ID"
// @Success      200  {object}  types.VideoMappingsResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /api/v1/videos/{id}/mappings [get]
func GetMappings(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		mappings, err := deps.VideoService.ListMappings(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendSuccess(c, types.VideoMappingsResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			VideoID:      id,
			Mappings:     mappings,
			Count:        len(mappings),
		})
	}
}
