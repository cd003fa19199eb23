// Package content bundles the stories shipped with the server.
package content

import (
	"bytes"
	_ "embed"

	"chaos-stories/internal/domain"
)

//go:embed deposit_job.json
var depositJob []byte

// DepositJob loads "The Deposit Job". Every call returns a fresh, indexed copy.
func DepositJob() (*domain.Story, []domain.Warning, error) {
	return domain.Load(bytes.NewReader(depositJob))
}
