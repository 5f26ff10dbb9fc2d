package bot

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// httpClient is reused for file downloads to avoid creating new clients per
// request.
var httpClient = resty.New().SetTimeout(30 * time.Second)

// maxPhotoSize caps receipt photo downloads at 10MB.
const maxPhotoSize = 10 * 1024 * 1024

func downloadFileID(
	getFileDirectURL func(fileID string) (string, error),
	fileID string,
) ([]byte, error) {
	log.Debug().Str("fileID", fileID).Msg("downloading telegram file")
	url, err := getFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	res, err := httpClient.R().Get(url)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("request failed: %v", res.Status())
	}
	body := res.Body()
	if len(body) > maxPhotoSize {
		return nil, fmt.Errorf("photo too large: %d bytes exceeds limit of %d bytes", len(body), maxPhotoSize)
	}
	return body, nil
}
