package engine

import (
	"errors"
	"testing"
)

func operatorWith(perms ...string) Operator {
	op := Operator{Email: "a@b.com", Permissions: make(map[string]bool)}
	for _, p := range perms {
		op.Permissions[p] = true
	}
	return op
}

func TestCheckAccessPerSubtype(t *testing.T) {
	cases := []struct {
		subtype    Subtype
		permission string
	}{
		{SubtypeNotification, "returns:notifications"},
		{SubtypeRenewal, "licences:renewals"},
		{SubtypeHofStop, "hof:notifications"},
		{SubtypeHofResume, "hof:notifications"},
	}
	for _, tc := range cases {
		def := &TaskDefinition{ID: 5, Subtype: tc.subtype}

		if err := CheckAccess(operatorWith(tc.permission), def); err != nil {
			t.Errorf("subtype %s: expected access with %s, got %v", tc.subtype, tc.permission, err)
		}
		if err := CheckAccess(operatorWith("some:other"), def); KindOf(err) != KindAccessDenied {
			t.Errorf("subtype %s: expected denial, got %v", tc.subtype, err)
		}
	}
}

func TestCheckAccessDenialCarriesTaskID(t *testing.T) {
	def := &TaskDefinition{ID: 42, Subtype: SubtypeRenewal}

	err := CheckAccess(operatorWith(), def)
	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected FlowError, got %v", err)
	}
	if fe.TaskID != 42 {
		t.Errorf("Expected task id 42 for audit, got %d", fe.TaskID)
	}
}

func TestCheckAccessUnknownSubtypeFailsClosed(t *testing.T) {
	def := &TaskDefinition{ID: 5, Subtype: "mystery"}

	// Even an operator holding every known permission is rejected.
	op := operatorWith("returns:notifications", "licences:renewals", "hof:notifications")
	if err := CheckAccess(op, def); KindOf(err) != KindConfig {
		t.Fatalf("Expected config error for unknown subtype, got %v", err)
	}
}

// Access is evaluated per call, so revoking the permission between two
// steps denies the second even though the first succeeded.
func TestCheckAccessNotCachedAcrossRequests(t *testing.T) {
	def := &TaskDefinition{ID: 5, Subtype: SubtypeNotification}
	op := operatorWith("returns:notifications")

	if err := CheckAccess(op, def); err != nil {
		t.Fatalf("Expected first check to pass: %v", err)
	}
	delete(op.Permissions, "returns:notifications")
	if err := CheckAccess(op, def); KindOf(err) != KindAccessDenied {
		t.Fatalf("Expected denial after revocation, got %v", err)
	}
}

func TestTaskDefinitionValidate(t *testing.T) {
	def := twoStepDefinition(t)
	if err := def.Validate(); err != nil {
		t.Fatalf("Expected valid fixture: %v", err)
	}

	dup := twoStepDefinition(t)
	dup.Steps[1].Widgets[0].Name = "region"
	if err := dup.Validate(); KindOf(err) != KindConfig {
		t.Errorf("Expected config error for duplicate widget name, got %v", err)
	}

	collide := twoStepDefinition(t)
	collide.Variables = []Variable{{Name: "region", Label: "Region"}}
	if err := collide.Validate(); KindOf(err) != KindConfig {
		t.Errorf("Expected config error for variable/widget collision, got %v", err)
	}

	empty := &TaskDefinition{ID: 1, Subtype: SubtypeNotification}
	if err := empty.Validate(); KindOf(err) != KindConfig {
		t.Errorf("Expected config error for stepless definition, got %v", err)
	}

	badSubtype := twoStepDefinition(t)
	badSubtype.Subtype = "mystery"
	if err := badSubtype.Validate(); KindOf(err) != KindConfig {
		t.Errorf("Expected config error for unknown subtype, got %v", err)
	}
}

func TestParseWidgetKind(t *testing.T) {
	for _, valid := range []string{"text", "textarea", "dropdown", "radio", "checkbox", "date", "licence_list"} {
		if _, err := ParseWidgetKind(valid); err != nil {
			t.Errorf("Expected %q to parse: %v", valid, err)
		}
	}
	if _, err := ParseWidgetKind("slider"); err == nil {
		t.Error("Expected unknown widget kind to fail")
	}
}
