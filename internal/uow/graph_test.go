package uow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterCreateAssignsSequentialRefs(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	first, err := graph.RegisterCreate("Account", map[string]any{"Name": "Acme"})
	require.NoError(t, err)
	second, err := graph.RegisterCreate("Contact", map[string]any{
		"LastName":  "Jones",
		"AccountId": first,
	})
	require.NoError(t, err)

	require.Equal(t, Ref("ref0"), first)
	require.Equal(t, Ref("ref1"), second)
	require.Equal(t, 2, graph.Len())
	require.True(t, graph.Contains(first))
	require.True(t, graph.Contains(second))
}

func TestRegisterCreateRejectsEmptyType(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	_, err := graph.RegisterCreate("", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "recordType", validationErr.Field)
}

func TestRegisterCreateRejectsForwardReference(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	_, err := graph.RegisterCreate("Case", map[string]any{
		"AccountId": Ref("ref9"),
	})

	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, Ref("ref9"), refErr.Ref)
	require.Equal(t, 0, graph.Len())
}

func TestRegisterCreateCopiesFields(t *testing.T) {
	t.Parallel()

	fields := map[string]any{"Name": "Acme"}
	graph := NewGraph()
	_, err := graph.RegisterCreate("Account", fields)
	require.NoError(t, err)

	fields["Name"] = "mutated"
	require.Equal(t, "Acme", graph.Intents()[0].Fields["Name"])
}

func TestBuildCaseGraphProducesFourIntentsInDependencyOrder(t *testing.T) {
	t.Parallel()

	graph, refs, err := BuildCaseGraph(Task{
		AccountName: "Acme",
		LastName:    "Jones",
		Subject:     "Web inquiry",
		Description: "Needs onboarding",
	})
	require.NoError(t, err)
	require.Equal(t, 4, graph.Len())

	intents := graph.Intents()
	require.Equal(t, "Account", intents[0].Type)
	require.Equal(t, "Contact", intents[1].Type)
	require.Equal(t, "Case", intents[2].Type)
	require.Equal(t, "Case", intents[3].Type)

	require.Equal(t, refs.Account, intents[1].Fields["AccountId"])
	require.Equal(t, refs.Account, intents[2].Fields["AccountId"])
	require.Equal(t, refs.Contact, intents[2].Fields["ContactId"])
	require.Equal(t, refs.ServiceCase, intents[3].Fields["ParentId"])
	require.Equal(t, "Follow up: Web inquiry", intents[3].Fields["Subject"])
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("remote store said no")
	commitErr := &CommitError{Err: cause}
	require.ErrorIs(t, commitErr, cause)

	deliveryErr := &DeliveryError{URL: "https://hooks.example.com", Err: cause}
	require.ErrorIs(t, deliveryErr, cause)
	require.Contains(t, deliveryErr.Error(), "hooks.example.com")
}
