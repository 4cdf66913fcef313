// Operator read endpoints over persisted referrals.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/carebridge/referral-watcher/internal/repo"
	"github.com/carebridge/referral-watcher/internal/utils"
)

// maxPageSize caps the referral listing page size.
const maxPageSize = 100

// ListReferrals handles GET /referrals?page=&page_size=: a paginated view
// of persisted referrals, newest first.
func ListReferrals(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.AtoiDefault(c.Query("page"), 1)
		if page < 1 {
			page = 1
		}
		size := utils.AtoiDefault(c.Query("page_size"), 20)
		offset, limit := utils.PageBounds(page, size, maxPageSize)

		total, err := repo.CountReferrals(c.Request.Context(), db)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "cannot count referrals")
			return
		}
		items, err := repo.ListReferralsPage(c.Request.Context(), db, offset, limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "cannot list referrals")
			return
		}

		ok(c, http.StatusOK, gin.H{
			"items":     items,
			"total":     total,
			"page":      page,
			"page_size": limit,
		})
	}
}
