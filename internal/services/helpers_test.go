package services_test

import "github.com/javajoker/sevenfour-backend/internal/utils"

func pageAll() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 100}
}
