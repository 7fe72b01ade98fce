package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/queue"
)

// buildSubmission reads the page images and, when a fields file is given,
// the form to verify. A nil VerifyPayload means extraction only.
func buildSubmission(opts options) (*queue.ExtractPayload, *queue.VerifyPayload, error) {
	var pages []queue.PagePayload
	for _, path := range strings.Split(opts.images, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		page := queue.PagePayload{Number: len(pages) + 1}
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			page.URL = path
		} else {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read page image: %w", err)
			}
			page.Image = data
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("no page images given")
	}

	extract := &queue.ExtractPayload{Pages: pages, Language: opts.language}
	if opts.fieldsFile == "" {
		return extract, nil, nil
	}

	data, err := os.ReadFile(opts.fieldsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fields: %w", err)
	}
	fields, err := parseFields(data)
	if err != nil {
		return nil, nil, err
	}
	return nil, &queue.VerifyPayload{ExtractPayload: *extract, Fields: fields}, nil
}

// submit enqueues the job on the worker queue and prints its id
func submit(ctx context.Context, opts options, stdout io.Writer) error {
	extract, verify, err := buildSubmission(opts)
	if err != nil {
		return err
	}

	producer, err := queue.NewProducer(opts.redisURL, opts.queueName, queue.DefaultProcessingTimeout)
	if err != nil {
		return err
	}
	defer producer.Close()

	var jobID, kind string
	if verify != nil {
		kind = queue.TypeVerify
		jobID, err = producer.EnqueueVerify(ctx, verify)
	} else {
		kind = queue.TypeExtract
		jobID, err = producer.EnqueueExtract(ctx, extract)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Enqueued %s job %s on %s (%d fields)\n", kind, jobID, opts.queueName, fieldCount(verify))
	return nil
}

func fieldCount(verify *queue.VerifyPayload) int {
	if verify == nil {
		return 0
	}
	return len(verify.Fields)
}
