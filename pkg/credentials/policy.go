package credentials

import "encoding/json"

// policyDocument is a minimal IAM policy document.
type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string           `json:"Effect"`
	Action    []string         `json:"Action"`
	Resource  string           `json:"Resource"`
	Condition *policyCondition `json:"Condition,omitempty"`
}

type policyCondition struct {
	StringLike map[string]string `json:"StringLike"`
}

// ScopedPolicy generates a minimal-privilege policy document granting
// object read/write/delete under the prefix and listing of the bucket
// constrained to that prefix. Generated fresh per call, never cached.
func ScopedPolicy(bucket, prefix string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect: "Allow",
				Action: []string{
					"s3:GetObject",
					"s3:PutObject",
					"s3:DeleteObject",
					"s3:GetObjectVersion",
				},
				Resource: "arn:aws:s3:::" + bucket + "/" + prefix + "*",
			},
			{
				Effect: "Allow",
				Action: []string{
					"s3:ListBucket",
					"s3:ListBucketVersions",
				},
				Resource: "arn:aws:s3:::" + bucket,
				Condition: &policyCondition{
					StringLike: map[string]string{
						"s3:prefix": prefix + "*",
					},
				},
			},
		},
	}
	raw, err := json.Marshal(&doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
