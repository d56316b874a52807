package domain_test

import (
	"testing"

	"assetflow/testutil"
)

func TestDomainStaysFreeOfInfrastructure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImportForbidden, testutil.DriverImportForbidden),
		"the domain model must not depend on engines or storage drivers")
}
