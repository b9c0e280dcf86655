package task

import "fmt"

// Validate checks a submission's sources and target for the
// structural constraints spec'd on Enqueue. It does not touch the
// opaque Options blob, which the orchestrator never interprets.
//
// Resolves an open question left unspecified upstream: a submission
// naming more than one delivery target (e.g. both in-body and a zip
// archive) is rejected rather than silently preferring one.
func Validate(sources []Source, target Target) error {
	if len(sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, s := range sources {
		switch s.Kind {
		case SourceFile:
			if s.Filename == "" || s.Base64 == "" {
				return fmt.Errorf("source %d: file source requires filename and base64", i)
			}
		case SourceHTTP:
			if s.URL == "" {
				return fmt.Errorf("source %d: http source requires url", i)
			}
		case SourceS3:
			if s.S3Endpoint == "" || s.S3Bucket == "" {
				return fmt.Errorf("source %d: s3 source requires endpoint and bucket", i)
			}
		default:
			return fmt.Errorf("source %d: unknown source kind %q", i, s.Kind)
		}
	}

	switch target.Kind {
	case TargetInBody, TargetZipArchive:
		// no extra fields required
	case TargetPresignedPUT:
		if target.PresignedURL == "" {
			return fmt.Errorf("presigned-put-url target requires a url")
		}
	case TargetObjectStore:
		if target.Endpoint == "" || target.Bucket == "" {
			return fmt.Errorf("object-store target requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown target kind %q", target.Kind)
	}

	return nil
}
