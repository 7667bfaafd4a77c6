// Package ssh runs one-shot commands on freshly cloned containers over a
// password-authenticated SSH session.
//
// It is used only for the provisioning bootstrap, where the template
// credentials are the sole way in and sshd becomes reachable some seconds
// after boot. Connections are retried with exponential backoff; an
// authentication failure is not retried. Host key verification is disabled by
// default because every container is new and its key unknown.
package ssh
