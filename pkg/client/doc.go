// Package client provides a high-level client for HotDocs Cloud Services.
//
// It builds the signed requests used to embed HotDocs interviews in a web
// page and handles the one piece of protocol the caller should not have to
// think about: when the service does not have a package cached, the client
// uploads it and repeats the request.
//
// # Basic Usage
//
// Create a client and start an interview session:
//
//	c, err := client.New(os.Getenv("HDCLOUD_SUBSCRIBER_ID"), os.Getenv("HDCLOUD_SIGNING_KEY"),
//	    client.WithTimeout(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	req := client.NewCreateSessionRequest("Employment Agreement", "/pkgs/Employment.pkg",
//	    client.WithBillingRef("hr-dept"),
//	)
//	session, err := c.CreateSession(ctx, req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(session.ID)
//
// # Signing
//
// Every request carries an Authorization header holding a base64 HMAC-SHA1
// over the signature timestamp, the subscriber ID and the request's
// parameters, and an x-hd-date header holding the same time. See Signer.
//
// # Error Handling
//
// Failures are returned as *Error, with helpers for the common cases:
//
//	body, err := c.SendRequest(ctx, req)
//	if err != nil {
//	    switch {
//	    case client.IsTransportError(err):
//	        // The service could not be reached
//	    case client.IsUploadFailed(err):
//	        // The package had to be uploaded and the upload was rejected
//	    case client.IsRequestFailed(err):
//	        // The service rejected the request; see client.StatusCode(err)
//	    }
//	}
package client
