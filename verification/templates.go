package verification

import "fmt"

const otpSubject = "Your Passport Photo Verification Code"

func otpTextBody(code string) string {
	return fmt.Sprintf(`Your verification code is: %s

This code expires in 10 minutes.

Enter it on the website to download watermark-free passport photos.
Never share this code with anyone. If you did not request it, you can
ignore this email.
`, code)
}

func otpHTMLBody(code string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2>Your verification code</h2>
  <p>You requested a code to download watermark-free passport photos.</p>
  <div style="border: 2px solid #667eea; border-radius: 8px; padding: 20px; text-align: center; margin: 24px 0;">
    <h1 style="letter-spacing: 8px; font-family: monospace; margin: 0;">%s</h1>
    <p style="color: #666; margin: 8px 0 0 0;">This code expires in 10 minutes</p>
  </div>
  <p>Never share this code with anyone. If you did not request it, you can ignore this email.</p>
</body>
</html>
`, code)
}
