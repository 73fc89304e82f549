package transport

import (
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// HTTPStatus returns the HTTP status code of the raw response recorded in
// an AWS operation's result metadata, or 0 when none was recorded.
func HTTPStatus(md middleware.Metadata) int {
	resp, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response)
	if !ok || resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
