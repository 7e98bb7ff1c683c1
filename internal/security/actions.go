package security

import "strings"

// findingTypeActions maps GuardDuty finding type prefixes to remediation
// guidance. Longest matching prefix wins.
var findingTypeActions = map[string]string{
	"UnauthorizedAccess:EC2":      "Isolate the instance with a restrictive security group and investigate the access source",
	"UnauthorizedAccess:IAMUser":  "Rotate the user's credentials immediately and review CloudTrail for unauthorized calls",
	"CryptoCurrency:EC2":          "Terminate the instance, it is likely compromised and mining cryptocurrency",
	"Backdoor:EC2":                "Quarantine the instance and rebuild it from a known-good image",
	"Trojan:EC2":                  "Quarantine the instance and scan attached volumes before restoring data",
	"Recon:EC2":                   "Review security group rules and block the scanning source at the network ACL",
	"Recon:IAMUser":               "Review the user's recent API activity and tighten their policy to least privilege",
	"Stealth:IAMUser":             "Re-enable the logging the user disabled and rotate their credentials",
	"Policy:IAMUser":              "Revert the policy change and require MFA for IAM modifications",
	"PrivilegeEscalation:IAMUser": "Revoke the escalated permissions and audit how they were granted",
	"Persistence:IAMUser":         "Remove the persistence mechanism and rotate all credentials for the user",
	"Exfiltration:S3":             "Block public access on the bucket and review its access logs",
	"Impact:S3":                   "Restore affected objects from versioning or backup and lock down bucket policy",
	"Discovery:S3":                "Review the bucket policy and enable S3 access logging",
}

const genericAction = "Investigate the finding in the GuardDuty console and contain the affected resource"

// actionFor returns remediation guidance for a GuardDuty finding type.
func actionFor(findingType string) string {
	best := ""
	for prefix := range findingTypeActions {
		if strings.HasPrefix(findingType, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return genericAction
	}
	return findingTypeActions[best]
}
