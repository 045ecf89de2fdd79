package uow

// CaseGraphRefs holds the temporary references of the fixed four-record
// workflow graph, in commit order.
type CaseGraphRefs struct {
	Account      Ref
	Contact      Ref
	ServiceCase  Ref
	FollowupCase Ref
}

// BuildCaseGraph assembles the standard workflow graph: an Account, a Contact
// on that Account, a service Case referencing both, and a follow-up Case
// referencing the service Case, the Account, and the Contact.
func BuildCaseGraph(task Task) (*Graph, CaseGraphRefs, error) {
	graph := NewGraph()

	accountRef, err := graph.RegisterCreate("Account", map[string]any{
		"Name": task.AccountName,
	})
	if err != nil {
		return nil, CaseGraphRefs{}, err
	}

	contactRef, err := graph.RegisterCreate("Contact", map[string]any{
		"LastName":  task.LastName,
		"AccountId": accountRef,
	})
	if err != nil {
		return nil, CaseGraphRefs{}, err
	}

	serviceCaseRef, err := graph.RegisterCreate("Case", map[string]any{
		"Subject":     task.Subject,
		"Description": task.Description,
		"Origin":      "Web",
		"Status":      "New",
		"AccountId":   accountRef,
		"ContactId":   contactRef,
	})
	if err != nil {
		return nil, CaseGraphRefs{}, err
	}

	followupRef, err := graph.RegisterCreate("Case", map[string]any{
		"Subject":   "Follow up: " + task.Subject,
		"Origin":    "Web",
		"Status":    "New",
		"ParentId":  serviceCaseRef,
		"AccountId": accountRef,
		"ContactId": contactRef,
	})
	if err != nil {
		return nil, CaseGraphRefs{}, err
	}

	return graph, CaseGraphRefs{
		Account:      accountRef,
		Contact:      contactRef,
		ServiceCase:  serviceCaseRef,
		FollowupCase: followupRef,
	}, nil
}
