package handlers

import "buildledger/internal/common"

func isValidationError(err error) bool {
	return common.IsValidationError(err)
}
