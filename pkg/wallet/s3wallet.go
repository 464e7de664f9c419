/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awscreds "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// S3Options locates an S3 (or S3 compatible) wallet
type S3Options struct {
	Bucket string
	// Prefix is prepended to every object key, e.g. "wallets/org2"
	Prefix string
	Region string
	// Endpoint overrides the AWS endpoint, for S3 compatible services
	Endpoint string
	// AccessKey and SecretKey are optional; the default AWS credential
	// chain is used when they are empty
	AccessKey string
	SecretKey string
	// PathStyle forces path style addressing, needed by most S3 compatible services
	PathStyle bool
	// HTTPClient overrides the HTTP client used by the SDK
	HTTPClient *http.Client
}

// s3WalletStore stores one object per identity, named <prefix>/<label>.id.
// Writes are conditional on the object not existing (If-None-Match: *), so
// of two writers racing on a label only the first one stores its identity.
type s3WalletStore struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Wallet creates an instance of a wallet, backed by objects in an S3 bucket
func NewS3Wallet(opts S3Options) (*Wallet, error) {
	if opts.Bucket == "" {
		return nil, errors.New("S3 bucket is empty")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg := aws.NewConfig().WithRegion(region)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint)
	}
	if opts.PathStyle {
		cfg = cfg.WithS3ForcePathStyle(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg = cfg.WithCredentials(awscreds.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	}
	if opts.HTTPClient != nil {
		cfg = cfg.WithHTTPClient(opts.HTTPClient)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}

	return NewWalletWithStore(&s3WalletStore{
		client: s3.New(sess),
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}), nil
}

func (s *s3WalletStore) key(label string) string {
	if s.prefix == "" {
		return label + dataFileExtension
	}
	return s.prefix + "/" + label + dataFileExtension
}

// Put an identity into the wallet.
func (s *s3WalletStore) Put(label string, content []byte) error {
	exists, err := s.Exists(label)
	if err != nil {
		return err
	}
	if exists {
		return ErrIdentityExists
	}

	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.key(label)),
		Body:                 bytes.NewReader(content),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	req.SetContext(context.Background())
	req.HTTPRequest.Header.Set("If-None-Match", "*")
	if err := req.Send(); err != nil {
		if isS3WriteConflict(err) {
			return ErrIdentityExists
		}
		return errors.Wrap(err, "failed to put object to S3")
	}
	return nil
}

// Get an identity from the wallet.
func (s *s3WalletStore) Get(label string) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(label)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read object body")
	}
	return content, nil
}

// Remove an identity from the wallet. If the identity does not exist, this method does nothing.
func (s *s3WalletStore) Remove(label string) error {
	_, err := s.client.DeleteObjectWithContext(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(label)),
	})
	if err != nil && !isS3NotFound(err) {
		return errors.Wrap(err, "failed to delete object from S3")
	}
	return nil
}

// Exists tests the existence of an identity in the wallet.
func (s *s3WalletStore) Exists(label string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(label)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to head object in S3")
	}
	return true, nil
}

// List all of the labels in the wallet.
func (s *s3WalletStore) List() ([]string, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}

	labels := []string{}
	err := s.client.ListObjectsV2PagesWithContext(context.Background(), &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), listPrefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, dataFileExtension) {
				continue
			}
			labels = append(labels, strings.TrimSuffix(name, dataFileExtension))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list objects in S3")
	}
	return labels, nil
}

// isS3WriteConflict reports a conditional write refused because the object
// exists, or because a concurrent conditional write on it is in progress
func isS3WriteConflict(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusPreconditionFailed {
		return true
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

func isS3NotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
