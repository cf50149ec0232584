// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"errors"
	"path/filepath"
	"strings"

	"gopkg.in/check.v1"
)

type unifiedSuite struct {
	installerMixin
}

var _ = check.Suite(&unifiedSuite{})

var testImage = "/boot/efi/EFI/Linux/Pop_OS-current-" + testRootUUID + ".efi"

func (s *unifiedSuite) TestMergeArgs(c *check.C) {
	files := map[string]string{
		".osrel":   "/usr/lib/os-release",
		".cmdline": "/tmp/cmdline",
		".linux":   "/vmlinuz",
		".initrd":  "/initrd.img",
	}
	c.Check(mergeArgs(files, "/stub.efi", "/tmp/out.efi"), check.DeepEquals, []string{
		"--add-section", ".osrel=/usr/lib/os-release", "--change-section-vma", ".osrel=0x20000",
		"--add-section", ".cmdline=/tmp/cmdline", "--change-section-vma", ".cmdline=0x30000",
		"--add-section", ".linux=/vmlinuz", "--change-section-vma", ".linux=0x2000000",
		"--add-section", ".initrd=/initrd.img", "--change-section-vma", ".initrd=0x3000000",
		"/stub.efi", "/tmp/out.efi",
	})
}

// staging returns the staging directory used by the recorded merge call.
func (s *unifiedSuite) staging(c *check.C) string {
	c.Assert(s.cmds.calls, check.Not(check.HasLen), 0)
	merge := s.cmds.calls[0]
	return filepath.Dir(merge[len(merge)-1])
}

func (s *unifiedSuite) TestUnsigned(c *check.C) {
	in := s.newInstaller(false, WithUnified(true))
	c.Assert(in.SetupUnifiedKernel("root=UUID=abcd ro quiet", false, false), check.IsNil)

	c.Assert(s.cmds.calls, check.HasLen, 1)
	staging := s.staging(c)
	c.Check(s.cmds.calls[0], check.DeepEquals, append([]string{"objcopy"}, mergeArgs(map[string]string{
		".osrel":   "/usr/lib/os-release",
		".cmdline": filepath.Join(staging, "cmdline"),
		".linux":   "/vmlinuz",
		".initrd":  "/initrd.img",
	}, "/usr/lib/systemd/boot/efi/linuxx64.efi.stub", filepath.Join(staging, "linux-unsigned.efi"))...))
	c.Check(s.cmds.cmdline, check.Equals, "root=UUID=abcd ro quiet")

	c.Check(s.readFile(c, testImage), check.Equals, "objcopy output")
	c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals, "default Pop_OS-current-"+testRootUUID+".efi\n")
	s.assertMissing(c, staging)
}

func (s *unifiedSuite) TestSigned(c *check.C) {
	s.writeFile(c, "/etc/kernelstub/mok.crt", "cert")
	s.writeFile(c, "/etc/kernelstub/mok.key", "key")
	in := s.newInstaller(false, WithUnified(true))
	c.Assert(in.SetupUnifiedKernel("quiet", false, false), check.IsNil)

	c.Assert(s.cmds.calls, check.HasLen, 2)
	staging := s.staging(c)
	c.Check(s.cmds.calls[1], check.DeepEquals, []string{"sbsign",
		"--cert", "/etc/kernelstub/mok.crt",
		"--key", "/etc/kernelstub/mok.key",
		"--output", filepath.Join(staging, "signed.efi"),
		filepath.Join(staging, "linux-unsigned.efi"),
	})
	c.Check(s.readFile(c, testImage), check.Equals, "sbsign output")
	s.assertMissing(c, staging)
}

func (s *unifiedSuite) TestCertWithoutKeyIsUnsigned(c *check.C) {
	s.writeFile(c, "/etc/kernelstub/mok.crt", "cert")
	in := s.newInstaller(false, WithUnified(true))
	c.Assert(in.SetupUnifiedKernel("quiet", false, false), check.IsNil)
	c.Check(s.cmds.calls, check.HasLen, 1)
	c.Check(s.readFile(c, testImage), check.Equals, "objcopy output")
}

func (s *unifiedSuite) TestSignFailurePublishesNothing(c *check.C) {
	s.writeFile(c, "/etc/kernelstub/mok.crt", "cert")
	s.writeFile(c, "/etc/kernelstub/mok.key", "key")
	s.cmds.fail["sbsign"] = errors.New("sbsign failed: exit status 1")
	in := s.newInstaller(false, WithUnified(true))

	err := in.SetupUnifiedKernel("quiet", false, false)
	c.Check(err, check.ErrorMatches, "sbsign failed: exit status 1")
	s.assertMissing(c, testImage)
	s.assertMissing(c, "/boot/efi/loader/loader.conf")
	s.assertMissing(c, s.staging(c))
}

func (s *unifiedSuite) TestMergeFailure(c *check.C) {
	s.cmds.fail["objcopy"] = errors.New("objcopy failed: exit status 1")
	in := s.newInstaller(false, WithUnified(true))
	c.Check(in.SetupUnifiedKernel("quiet", false, false), check.NotNil)
	s.assertMissing(c, "/boot/efi/EFI/Linux")
}

func (s *unifiedSuite) TestSetupKernelBuildsImage(c *check.C) {
	in := s.newInstaller(false, WithUnified(true))
	c.Assert(in.SetupKernel("quiet", true, false), check.IsNil)
	c.Check(s.readFile(c, testImage), check.Equals, "objcopy output")
	c.Check(s.readFile(c, testFolder+"/vmlinuz.efi"), check.Equals, "current kernel")
	c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals, "default Pop_OS-current-"+testRootUUID+".efi\n")
}

func (s *unifiedSuite) TestPreviousImage(c *check.C) {
	c.Assert(s.fs.MkdirAll(testFolder, 0755), check.IsNil)
	in := s.newInstaller(false, WithUnified(true))
	_, err := in.BackupOld("quiet", false)
	c.Assert(err, check.IsNil)

	c.Assert(s.cmds.calls, check.HasLen, 1)
	c.Check(strings.Join(s.cmds.calls[0], " "), check.Matches, ".* --add-section .linux=/vmlinuz.old .*")
	c.Check(s.readFile(c, "/boot/efi/EFI/Linux/Pop_OS-previous-"+testRootUUID+".efi"), check.Equals, "objcopy output")
	s.assertMissing(c, "/boot/efi/loader/loader.conf")
}

func (s *unifiedSuite) TestPreviousImageNeedsBothArtifacts(c *check.C) {
	c.Assert(s.fs.Remove("/initrd.img.old"), check.IsNil)
	c.Assert(s.fs.MkdirAll(testFolder, 0755), check.IsNil)
	in := s.newInstaller(false, WithUnified(true))
	_, err := in.BackupOld("quiet", false)
	c.Assert(err, check.IsNil)
	c.Check(s.cmds.calls, check.HasLen, 0)
}

func (s *unifiedSuite) TestSingleDefaultWithLoader(c *check.C) {
	for _, existing := range []bool{false, true} {
		for _, overwrite := range []bool{false, true} {
			for _, simulate := range []bool{false, true} {
				comment := check.Commentf("existing=%v overwrite=%v simulate=%v", existing, overwrite, simulate)
				c.Assert(s.fs.RemoveAll(testESP), check.IsNil)
				c.Assert(s.fs.MkdirAll(testESP, 0755), check.IsNil)
				if existing {
					s.writeFile(c, "/boot/efi/loader/loader.conf", "default other-os\n")
				}
				s.logs.Reset()

				in := s.newInstaller(simulate, WithUnified(true))
				c.Assert(in.SetupKernel("quiet", true, overwrite), check.IsNil, comment)

				writes := 0
				for _, line := range strings.Split(s.logs.String(), "\n") {
					if strings.Contains(line, "writing file") && strings.Contains(line, "path=/boot/efi/loader/loader.conf ") {
						writes++
					}
				}
				want := 1
				if existing && !overwrite {
					want = 0
				}
				c.Check(writes, check.Equals, want, comment)

				if simulate {
					continue
				}
				if want == 1 {
					c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals,
						"default Pop_OS-current-"+testRootUUID+".efi\n", comment)
				} else {
					c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals, "default other-os\n", comment)
				}
				c.Check(s.readFile(c, "/boot/efi/loader/entries/Pop_OS-current.conf"), check.Matches, "title Pop!_OS\n(?s).*", comment)
			}
		}
	}
}
