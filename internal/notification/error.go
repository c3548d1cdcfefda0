package notification

import "errors"

var ErrTemplateNotFound = errors.New("email template not found")
