package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
)

// Send signs and sends req.
//
// If the service answers 404, the package req refers to is not in its
// cache. Send then uploads the package from req's package file path and:
//   - on upload success, sends req once more and reports that response;
//   - on 409, another uploader got there first; the original response is
//     reported and req is not sent again;
//   - on any other upload failure, reports the upload's response.
//
// A final status of 300 or above is returned as an *Error. Nothing else is
// retried, so a call makes at most three round-trips.
func (c *Client) Send(ctx context.Context, req Request) (*Result, error) {
	if req == nil {
		return nil, &ValidationError{
			Code:    ErrCodeInvalidRequest,
			Message: "request cannot be nil",
		}
	}

	op := req.Operation()
	res := &Result{Op: op}

	rsp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	res.RoundTrips++

	kind := KindRequestFailed
	if rsp.StatusCode() == http.StatusNotFound {
		if !canProvision(req) {
			kind = KindPackageNotCached
		} else {
			c.log.Info("package not cached, uploading",
				"op", op,
				"package", req.PackageID(),
			)

			upload, err := c.provision(ctx, req)
			if err != nil {
				return nil, err
			}
			res.RoundTrips++

			switch status := upload.StatusCode(); {
			case status < 300:
				res.Uploaded = true
				rsp, err = c.roundTrip(ctx, req)
				if err != nil {
					return nil, err
				}
				res.RoundTrips++
			case status != http.StatusConflict:
				c.log.Warn("package upload failed",
					"op", op,
					"package", req.PackageID(),
					"status", status,
				)
				op, kind, rsp = OpUploadPackage, KindUploadFailed, upload
			default:
				c.log.Info("package cached concurrently, keeping original response",
					"op", op,
					"package", req.PackageID(),
				)
			}
		}
	}

	res.StatusCode = rsp.StatusCode()
	res.Body = rsp.Body

	if res.StatusCode >= 300 {
		return nil, newStatusError(kind, op, res.StatusCode, rsp.Body)
	}
	return res, nil
}

// canProvision reports whether a 404 for req can be answered with an upload.
func canProvision(req Request) bool {
	return req.Operation() != OpUploadPackage &&
		req.PackageID() != "" &&
		req.PackageFilePath() != ""
}

// provision uploads the package req refers to.
func (c *Client) provision(ctx context.Context, req Request) (*api.Response, error) {
	path := req.PackageFilePath()
	content, err := c.opts.readPackage(path)
	if err != nil {
		return nil, &Error{
			Kind:    KindUploadFailed,
			Op:      OpUploadPackage,
			Message: fmt.Sprintf("read package %s: %v", path, err),
			Err:     err,
		}
	}
	return c.roundTrip(ctx, NewUploadPackageRequest(req.PackageID(), content))
}
