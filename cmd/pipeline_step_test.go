package cmd

import (
	"testing"

	"execd/execctx"
)

func TestBuildCollaborators_NoFeaturesIsMinimal(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	params := execctx.NewParameters("test.service")

	collabs := buildCollaborators(ctx, params)
	if collabs.Runtime == nil {
		t.Error("expected a Runtime registry to always be constructed")
	}
	if collabs.Namespacer == nil {
		t.Error("expected a Namespacer to always be constructed")
	}
	if collabs.Credentials != nil || collabs.CredMounter != nil {
		t.Error("expected no credential collaborators without any credential specs")
	}
	if collabs.PAMSession != nil {
		t.Error("expected no PAM session without a configured service")
	}
}

func TestBuildCollaborators_CredentialsWireStoreAndMounter(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.LoadCredentials = []execctx.CredentialSpec{{ID: "foo"}}
	params := execctx.NewParameters("test.service")

	collabs := buildCollaborators(ctx, params)
	if collabs.Credentials == nil {
		t.Error("expected a Credentials store when LoadCredentials is non-empty")
	}
	if collabs.CredMounter == nil {
		t.Error("expected a CredMounter when LoadCredentials is non-empty")
	}
}

func TestBuildCollaborators_PAMServiceWiresSession(t *testing.T) {
	ctx := execctx.NewDefaultContext()
	ctx.PAMService = "login"
	params := execctx.NewParameters("test.service")

	collabs := buildCollaborators(ctx, params)
	if collabs.PAMSession == nil {
		t.Error("expected a PAM session when PAMService is set")
	}
}
