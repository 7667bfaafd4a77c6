// Package labels builds the hypervisor tag set attached to every container.
//
// Tags identify the managing control plane, the owner and the template so
// that containers can be traced back to their datastore rows by an operator
// looking at the hypervisor alone.
package labels
