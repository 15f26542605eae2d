package repositories

import (
	"fmt"

	"github.com/mc-review/submission-engine/pkg/models"
)

// sideTables names the tables and columns that hold one side of the contract/rate pair.
// Queries shared by both sides are built from it; every value is a constant identifier.
type sideTables struct {
	entities  string // contracts
	revisions string // contract_revisions
	entityFK  string // contract_id

	draftLinks             string // draft_rates_on_contract_revisions
	draftLinkRevisionFK    string // contract_revision_id
	draftLinkCounterpartFK string // rate_id

	edgeRevisionFK    string // contract_revision_id on rate_revisions_on_contract_revisions
	edgeInvalidatedBy string // invalidated_by_contract_revision_id
}

var (
	contractTables = sideTables{
		entities:               "contracts",
		revisions:              "contract_revisions",
		entityFK:               "contract_id",
		draftLinks:             "draft_rates_on_contract_revisions",
		draftLinkRevisionFK:    "contract_revision_id",
		draftLinkCounterpartFK: "rate_id",
		edgeRevisionFK:         "contract_revision_id",
		edgeInvalidatedBy:      "invalidated_by_contract_revision_id",
	}
	rateTables = sideTables{
		entities:               "rates",
		revisions:              "rate_revisions",
		entityFK:               "rate_id",
		draftLinks:             "draft_contracts_on_rate_revisions",
		draftLinkRevisionFK:    "rate_revision_id",
		draftLinkCounterpartFK: "contract_id",
		edgeRevisionFK:         "rate_revision_id",
		edgeInvalidatedBy:      "invalidated_by_rate_revision_id",
	}
)

func tablesFor(side models.Side) sideTables {
	switch side {
	case models.SideContract:
		return contractTables
	case models.SideRate:
		return rateTables
	default:
		panic(fmt.Sprintf("unknown side %q", side))
	}
}
